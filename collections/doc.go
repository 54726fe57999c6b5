// Package collections provides generic data structures for Go applications.
//
// This package currently carries ArrayList, the ordered Collection
// implementation used elsewhere in this module. Generics give it type-safe
// usage without a per-element-type variant.
package collections
