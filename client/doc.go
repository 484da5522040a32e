// Package client is the HTTP transport used to talk to the NovaDB CMS and
// Index APIs. It owns URL building, Basic authentication, JSON encoding and
// response normalization, multipart uploads and raw streaming downloads.
//
// # Quick start
//
//	cms, err := client.New("https://nova.example.com/apis/cms/v1", user, password,
//	    client.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	raw, err := cms.Get(ctx, "/branches/draft/objects/1001",
//	    client.NewQuery().Set("inherited", true))
//
// # Responses
//
// Successful JSON responses are returned as json.RawMessage so callers can
// surface the server's payload untouched. Bodiless responses (for example a
// DELETE answered with 204) normalize to an empty object.
//
// Any non-2xx response becomes an *APIError whose message is
// "HTTP <status>: <body>" with the body reproduced verbatim. The transport
// never retries.
//
// # Query parameters
//
// Query keeps insertion order and drops nil values, nil pointers and empty
// strings so optional filters never appear as "key=". Booleans encode as
// true/false and integers in decimal.
//
// # Streaming
//
// GetRaw hands back the live *http.Response for large downloads. PostForm and
// PutForm stream the multipart body through an io.Pipe.
package client
