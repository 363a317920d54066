// Package lsdiff holds build metadata shared by the lsdiff commands.
package lsdiff

// Version is the lsdiff release version.
const Version = "0.3.0"
