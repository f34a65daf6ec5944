// Package models defines the core domain records for teamsync.
//
// # Records
//
//   - User: an identity known to the service, optionally attached to one team
//   - Team: a named group with exactly one owner and a non-empty member set
//   - Schedule: a dated entry on a team's shared calendar
//
// # Membership Invariant
//
// User.TeamID and Team.Members describe the same relationship from both
// ends. A user with a non-empty TeamID is listed in that team's Members,
// and every listed member points back at the team. Only the membership
// package writes either side, and it always writes both in one
// transaction.
//
// # Design Principles
//
// 1. **IDs, not pointers**: relationships are ID strings so records can be
// copied freely between the store and callers
// 2. **Store-assigned bookkeeping**: Team.Version and Schedule.Seq are set
// by the storage layer and are never chosen by callers
// 3. **Unix seconds**: timestamps are int64 seconds, like the rest of the API
package models
