package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `scanback issues printable tag codes and tracks each tag from issue to found.

Lifecycle:
- issue_codes creates unactivated tags. An owner activates one through the HTTP API.
- Scans of activated tags are counted; the last 50 are kept on the record.
- A finder report moves a tag to "found" once.
- set_status flips active and inactive; suspended and found tags cannot be toggled.
- deactivate_tag unbinds the owner so the code can be activated again.

Reading:
- get_tag returns the full record including scan history.
- list_tags returns summaries; filter by owner, kinds, statuses or activation.
- list_deliveries shows what the notification channel did with each event.
- cache_stats reports the public lookup cache counters.

Docs: scanback://docs/lifecycle
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "scanback://docs/lifecycle",
		Name:        "lifecycle",
		Title:       "Tag lifecycle",
		Description: "Statuses, transitions and what each operation may change.",
		Content: `# Tag lifecycle

| Status | Reached by | Leaves by |
|---|---|---|
| active | issue, activate, toggle | toggle, finder report, deactivate |
| inactive | toggle, deactivate | activate, toggle |
| suspended | set directly in the store | finder report, deactivate |
| found | finder report | deactivate |

## Rules

- Activation binds an owner once. The same owner activating again gets the stored record back.
- Scanning an unactivated tag fails and records nothing.
- A finder report is accepted once per tag.
- Public lookups are cached. Every successful mutation evicts the cached view.
- Contact email and phone change only through a one-time code sent to the owner.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
