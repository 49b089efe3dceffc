// Package workspace finds the workspace roots to search and tags each one
// with its current git branch.
//
// Branch lookup is latency bounded. Resolver runs one lookup per root and
// races the whole set against a single timeout. If the timeout wins, every
// root is tagged types.BranchUnknown, even roots whose lookup had already
// finished.
package workspace
