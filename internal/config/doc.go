// Package config loads and validates palantir.json, the client
// configuration file. Values not present in the file get defaults; the
// duration fields are stored as strings and parsed on access.
package config
