// Package mcp provides the NovaDB MCP server.
//
// The server exposes the NovaDB CMS API (objects, branches, comments, jobs,
// files, code generation) and the Index API (search, counts, facets,
// suggestions) as MCP tools over stdio. Tool names are prefixed
// `novadb_cms_` and `novadb_index_`.
//
// # Constructor and lifecycle
//
// Use NewServer with NewServerRequest, then call Run with a cancellable
// context. Run blocks until the context is cancelled or the host closes stdin.
//
//	srv, err := mcp.NewServer(mcp.NewServerRequest{
//		Config: mcp.Config{
//			Host:          "nova.example.com",
//			CMSUser:       "cms-user",
//			CMSPassword:   "...",
//			IndexUser:     "index-user",
//			IndexPassword: "...",
//		},
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
//
// # Binary payloads
//
// Downloads (job logs, artifacts, files, generated code) and uploads (job
// input, files) go through one payload strategy chosen at construction:
//
//   - disk (default): downloads are written below WorkspaceDir and the tool
//     returns file metadata; uploads read a workspace-relative sourcePath.
//     Paths escaping the workspace are rejected before any I/O.
//   - inline: downloads are returned in the result (text, or base64 with a
//     `[base64] ` marker) up to InlineMaxBytes; uploads take contentBase64.
//
// # Errors
//
// Tool failures are returned as MCP tool errors whose text is a JSON
// envelope: {"error":{"error_code","detail","retryable","http_status"}}.
package mcp
