// Package tokenize turns mixed Latin/CJK text into index terms.
//
// The pipeline is Normalize → chunk.Split → CoreTokenize → ApplyPolicy →
// PostProcess. Documents are tokenized once at the configured CJK
// granularity; queries are tokenized at both character and bigram
// granularity and the two passes are merged, so a short query matches
// whichever form the corpus was indexed with.
//
// Every entry point is total: empty or malformed input yields empty output,
// never a panic or an error.
package tokenize
