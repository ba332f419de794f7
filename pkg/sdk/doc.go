// Package sdk embeds the document review pipeline in a Go program without the HTTP API.
//
// The client wires the same services as the server over a sqlite or postgres database:
//
//	client, err := sdk.New(ctx, sdk.WithDatabase("sqlite", "file:review.db"))
//	if err != nil { ... }
//	defer client.Close()
//
//	_, _ = client.Rules().Save(ctx, sdk.RuleInput{
//	    Title:   "Meal cap",
//	    Content: "Business meals above 1000 CNY need sign-off.",
//	    Scope:   sdk.RuleScope{Categories: []string{"meals"}, MaxAmount: "1000"},
//	})
//	_, _ = client.Rules().RefreshIndex(ctx)
//
//	doc, _ := client.Documents().Ingest(ctx, sdk.Invoice{Vendor: "Golden Dragon", Amount: "1250", Category: "meals"})
//	for _, f := range doc.Flags {
//	    fmt.Println(f.Severity, f.Message)
//	}
//	_, _ = client.Reviews().Approve(ctx, doc.ID, "alice", "ok")
package sdk
