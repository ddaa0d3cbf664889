// Package scanner defines the core types shared by the CMS scan pipeline: the
// request/snapshot/result values that flow from the fetcher through the
// classifier to a result sink, the fetch failure taxonomy, and the interfaces
// each collaborator implements.
package scanner
