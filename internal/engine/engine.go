// Package engine orchestrates the wisp pipelines. It holds the task graph,
// the scheduler that runs it, the rebuild queue used while watching and the
// two compositions built on top of them: a one-shot production build and
// the continuous development mode.
package engine
