// Package extract recovers one JSON object from the free-form text an
// agent prints and validates it against a workflow schema.
//
// Recovery runs an ordered list of strategies and the first one that
// yields a JSON object wins:
//
//	fenced         last fenced code block first, parsed with goldmark
//	whole          the trimmed transcript as a whole
//	backward_scan  balanced span ending at the last closing brace
//	forward_scan   first balanced span, in order of opening braces
//
// Every candidate that fails to parse is retried once after joining
// soft-wrapped lines inside string literals. A transcript with no
// recoverable object produces a failure record that keeps every
// attempted strategy and the last parse error; a recovered object that
// does not match the schema produces a distinct schema failure that
// keeps the payload.
package extract
