package errutils

// Package errutils provides a set of utilities for working with errors in Go.

// Example:
//
// The following example demonstrates how to use `MultiError` to collect several errors:
//
//     package main
//
//     import (
//         "fmt"
//         "github.com/dolead/tasksemaphore/errutils"
//     )
//
//     func main() {
//         errs := errutils.NewMultiErr(nil)
//         errs.Add(firstOperation())
//         errs.Add(secondOperation())
//         if errs.HasErrors() {
//             fmt.Println(errs)
//         }
//     }
//
// In the above example, nil results are skipped by `Add`, and `fmt.Println()` prints
// the collected error messages one per line.
