package stockpile

// Version of the Stockpile binary (set by linker).
var Version = "dev"

// Timestamp of the Stockpile binary (set by linker).
var Timestamp = "0"
