/*
Package search counts occurrences of a target word in one input file.

It is the whole of a worker's computation: Open turns a path into a UTF-8
text stream (transparently decompressing .gz and .zst inputs, rejecting
binary content and transcoding legacy charsets) and Count tokenizes that
stream on whitespace, comparing each token to the target with exact,
case-sensitive equality.

Nothing here knows how the result leaves the process.
*/
package search
