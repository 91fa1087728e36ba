package rerank

// Batch is a bounded, ordered slice of candidate texts. Offset is the index of
// Texts[0] in the full candidate list, so scores can be mapped back.
type Batch struct {
	Offset int
	Texts  []string
}

// Split cuts texts into consecutive batches of at most size elements. A
// non-positive size yields a single batch.
func Split(texts []string, size int) []Batch {
	if len(texts) == 0 {
		return nil
	}
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}
	batches := make([]Batch, 0, (len(texts)+size-1)/size)
	for off := 0; off < len(texts); off += size {
		end := min(off+size, len(texts))
		batches = append(batches, Batch{Offset: off, Texts: texts[off:end]})
	}
	return batches
}
