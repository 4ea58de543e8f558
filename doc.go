// Package contractrag answers questions about service agreements with
// retrieval-augmented generation.
//
// Indexing reads the layout parser output of each catalog document, splits
// it into pages at page markers and stores the pages in Redis (or memory).
// Asking extracts the entities of a question with the language model,
// retrieves the best matching pages with a keyword, vector or hybrid search
// restricted by the catalog metadata filter, and generates the answer from
// those pages.
//
//	client, err := contractrag.New(contractrag.WithEnv("local"))
//	if err != nil {
//	    return err
//	}
//	if _, err := client.Index(ctx); err != nil {
//	    return err
//	}
//	ans, err := client.Ask(ctx, "When does the ACME agreement renew?",
//	    contractrag.WithStrategy("hybrid"), contractrag.WithLimit(3))
//
// Backend failures match ErrProvider; caller mistakes match ErrValidation.
package contractrag
