// Package catalog talks to the remote movie catalog: a JSON API serving paged
// movie lists and the genre lookup table, and a media origin serving poster and
// backdrop bytes by path. Client is a thin HTTP layer with no retries; Metadata
// layers asset resolvers on top of it so genre lookups and list pages share the
// same memory/disk/network tiers as images.
package catalog
