package library

// Account is a hex-encoded x-only secp256k1 public key.
type Account = string

// Sha256 is a hex-encoded 32 byte hash, used for event IDs.
type Sha256 = string

// Geohash is a base32 geohash string scoping a location context.
type Geohash = string
