/*
Package config loads and validates the Zoe configuration file.

The configuration is a flat YAML document; every recognized option has a
default so a missing file is not an error. The resulting Config value is
immutable by convention: it is constructed once in main and passed to each
component explicitly, there is no package-level singleton.
*/
package config
