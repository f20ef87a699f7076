package document

// Embedded is a document together with the vectors it was indexed with. Persisting the
// vectors lets the indexes be rebuilt from the store without calling the provider.
type Embedded struct {
	Doc    Document
	Dense  []float32
	Tokens [][][]float32 // passage -> token -> component
}
