// Command binge-hub serves and inspects the movie catalog cache.
//
// The serve subcommand starts the Fiber HTTP API in front of the tiered
// image and metadata resolvers. The remaining subcommands (lists, genres,
// fetch, rate, check-config and version) reuse the same configuration and
// cache directory for one-off operations from a terminal.
package main
