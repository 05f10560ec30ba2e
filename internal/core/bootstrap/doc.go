// Package bootstrap probes the host at startup and reports which discovery
// mechanisms the environment supports, so the resolver chain is built from
// stages that can actually work.
package bootstrap
