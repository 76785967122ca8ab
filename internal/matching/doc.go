// Package matching maps statement rows to catalog works.
//
// Engine.Match runs the stages in order:
//
//   - exact: ISWC, then ISRC when it names a single work, then work code
//   - fuzzy: title and writer similarity over every work in the snapshot
//   - semantic: pluggable nearest-neighbour CandidateSources, merged by work id
//   - rerank: an optional Reranker over the top candidates, blended with the
//     prior score
//
// Every stage reports a StageOutcome. Collaborator failures are absorbed and
// recorded there; the row still gets a result from the stages that ran.
// Policy turns the best score into a MatchStatus and a Recommendation.
package matching
