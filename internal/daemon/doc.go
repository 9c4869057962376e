// Package daemon speaks the line-oriented protocol of the local cache daemon.
//
// A request is "get\n<N>\n" followed by N cache keys, one per line. The daemon
// answers with the keys it does not hold, optionally interleaved with
// "_hits_<ignored>_<count>" progress lines, and terminates the answer with a
// line containing "0". After the client filled the misses from the remote
// peer it may announce them with "set\n<N>\n" plus the keys, and it ends the
// session with "exit\n".
//
// When no daemon command is configured the null channel stands in and reports
// every key as a miss, which keeps hermetic setups deterministic.
package daemon
