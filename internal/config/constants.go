package config

// SourceFileExt is the conventional extension for PROJECT SOVEREIGN
// assembly source files.
const SourceFileExt = ".sov"

// DefaultConfigFile is the YAML file consulted by Load when present
// in the working directory.
const DefaultConfigFile = "sovereign.yaml"
