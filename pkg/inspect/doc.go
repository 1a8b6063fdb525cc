// Package inspect provides read-only views of a resource tree for
// interactive tools: name resolution, a grouped object/instance listing
// and value formatting.
package inspect
