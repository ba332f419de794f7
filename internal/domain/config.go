package domain

// KeyPrefix namespaces every key this service writes to the key-value backend.
// Set once at startup from config before any repository is constructed.
var KeyPrefix = "docreview:"

// EmbeddingInstructions holds the instruction prefixes used for asymmetric retrieval.
// Rules are embedded as documents, document contexts as queries.
type EmbeddingInstructions struct {
	Document string
	Query    string
}

// DefaultEmbeddingInstructions returns instructions tuned for instruction-aware embedding models.
func DefaultEmbeddingInstructions() EmbeddingInstructions {
	return EmbeddingInstructions{
		Document: "Represent this expense policy rule for retrieval: ",
		Query:    "Find expense policy rules that apply to this invoice: ",
	}
}
