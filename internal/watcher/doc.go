// Package watcher reloads files that change on disk, debouncing the bursts
// of events a single save produces.
package watcher
