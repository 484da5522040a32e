package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	toolCMSGetObject      = "novadb_cms_get_object"
	toolCMSGetObjects     = "novadb_cms_get_objects"
	toolCMSGetTypedObject = "novadb_cms_get_typed_objects"
	toolCMSCreateObjects  = "novadb_cms_create_objects"
	toolCMSUpdateObjects  = "novadb_cms_update_objects"
	toolCMSDeleteObjects  = "novadb_cms_delete_objects"

	toolCMSGetBranch    = "novadb_cms_get_branch"
	toolCMSCreateBranch = "novadb_cms_create_branch"
	toolCMSUpdateBranch = "novadb_cms_update_branch"
	toolCMSDeleteBranch = "novadb_cms_delete_branch"

	toolCMSGetComments   = "novadb_cms_get_comments"
	toolCMSGetComment    = "novadb_cms_get_comment"
	toolCMSCreateComment = "novadb_cms_create_comment"
	toolCMSUpdateComment = "novadb_cms_update_comment"
	toolCMSDeleteComment = "novadb_cms_delete_comment"

	toolCMSCodeGeneratorTypes = "novadb_cms_get_code_generator_types"
	toolCMSCodeGeneratorType  = "novadb_cms_get_code_generator_type"

	toolCMSGetJobs          = "novadb_cms_get_jobs"
	toolCMSGetJob           = "novadb_cms_get_job"
	toolCMSGetJobLogs       = "novadb_cms_get_job_logs"
	toolCMSGetJobMetrics    = "novadb_cms_get_job_metrics"
	toolCMSGetJobProgress   = "novadb_cms_get_job_progress"
	toolCMSCreateJob        = "novadb_cms_create_job"
	toolCMSUpdateJob        = "novadb_cms_update_job"
	toolCMSDeleteJob        = "novadb_cms_delete_job"
	toolCMSGetJobObjectIDs  = "novadb_cms_get_job_object_ids"
	toolCMSGetJobArtifacts  = "novadb_cms_get_job_artifacts"
	toolCMSGetJobArtifact   = "novadb_cms_get_job_artifact"
	toolCMSGetJobArtifactsZ = "novadb_cms_get_job_artifacts_zip"

	toolCMSJobInputUpload   = "novadb_cms_job_input_upload"
	toolCMSJobInputContinue = "novadb_cms_job_input_continue"
	toolCMSJobInputCancel   = "novadb_cms_job_input_cancel"

	toolCMSGetFile            = "novadb_cms_get_file"
	toolCMSUploadFile         = "novadb_cms_upload_file"
	toolCMSUploadFileContinue = "novadb_cms_upload_file_continue"
	toolCMSUploadFileCancel   = "novadb_cms_upload_file_cancel"

	toolIndexSearchObjects      = "novadb_index_search_objects"
	toolIndexCountObjects       = "novadb_index_count_objects"
	toolIndexObjectOccurrences  = "novadb_index_object_occurrences"
	toolIndexSuggestions        = "novadb_index_suggestions"
	toolIndexSearchComments     = "novadb_index_search_comments"
	toolIndexCountComments      = "novadb_index_count_comments"
	toolIndexWorkItemOccurrence = "novadb_index_work_item_occurrences"
	toolIndexCommentOccurrences = "novadb_index_comment_occurrences"
	toolIndexObjectXMLLinkCount = "novadb_index_object_xml_link_count"
	toolIndexMatchStrings       = "novadb_index_match_strings"
)

var mcpToolNames = []string{
	toolCMSGetObject,
	toolCMSGetObjects,
	toolCMSGetTypedObject,
	toolCMSCreateObjects,
	toolCMSUpdateObjects,
	toolCMSDeleteObjects,
	toolCMSGetBranch,
	toolCMSCreateBranch,
	toolCMSUpdateBranch,
	toolCMSDeleteBranch,
	toolCMSGetComments,
	toolCMSGetComment,
	toolCMSCreateComment,
	toolCMSUpdateComment,
	toolCMSDeleteComment,
	toolCMSCodeGeneratorTypes,
	toolCMSCodeGeneratorType,
	toolCMSGetJobs,
	toolCMSGetJob,
	toolCMSGetJobLogs,
	toolCMSGetJobMetrics,
	toolCMSGetJobProgress,
	toolCMSCreateJob,
	toolCMSUpdateJob,
	toolCMSDeleteJob,
	toolCMSGetJobObjectIDs,
	toolCMSGetJobArtifacts,
	toolCMSGetJobArtifact,
	toolCMSGetJobArtifactsZ,
	toolCMSJobInputUpload,
	toolCMSJobInputContinue,
	toolCMSJobInputCancel,
	toolCMSGetFile,
	toolCMSUploadFile,
	toolCMSUploadFileContinue,
	toolCMSUploadFileCancel,
	toolIndexSearchObjects,
	toolIndexCountObjects,
	toolIndexObjectOccurrences,
	toolIndexSuggestions,
	toolIndexSearchComments,
	toolIndexCountComments,
	toolIndexWorkItemOccurrence,
	toolIndexCommentOccurrences,
	toolIndexObjectXMLLinkCount,
	toolIndexMatchStrings,
}

// ToolNames returns the registered tool names in catalogue order.
func ToolNames() []string {
	return append([]string(nil), mcpToolNames...)
}

type toolContract struct {
	Top      []string
	Purpose  string
	UseWhen  string
	Requires string
	Effects  string
	Retry    string
	Next     string
}

func formatToolDescription(spec toolContract) string {
	lines := make([]string, 0, len(spec.Top)+6)
	for _, line := range spec.Top {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, []string{
		"Purpose: " + spec.Purpose,
		"Use when: " + spec.UseWhen,
		"Requires: " + spec.Requires,
		"Effects: " + spec.Effects,
		"Retry: " + spec.Retry,
	}...)
	if strings.Contains(spec.Next, "\n") {
		lines = append(lines, "Next:\n"+spec.Next)
	} else {
		lines = append(lines, "Next: "+spec.Next)
	}
	return strings.Join(lines, "\n")
}

const (
	inheritedLine      = "INHERITED: Set `inherited=true`; without it values inherited from parent branches are missing."
	setSemanticsLine   = "SET SEMANTICS: Multi-value attributes are replaced as a whole. Read the object first with `inherited=true` and send the complete value set; omitted entries are deleted."
	multiValueLine     = "MULTI-VALUE: Send one value entry per item with `sortReverse` 0, 1, 2... (never arrays). Language-dependent attributes need one entry per language (201=EN, 202=DE)."
	preferIndexLine    = "PREFER INDEX: For finding data objects use `novadb_index_search_objects`; this tool is best for schema browsing (types, attributes, forms)."
	indexLagLine       = "CONSISTENCY: The index is updated asynchronously after CMS writes. A fresh write may not be visible yet; read it back through the CMS tools instead of retrying searches."
	branchAttrsLine    = "BRANCH ATTRIBUTES: 1000 name (language-dependent, 201=EN, 202=DE), 4000 parent branch, 4001 branch type, 4002 workflow state, 4003 due date, 4004 assigned to."
	jobStatesLine      = "JOB STATES: 0=New, 1=Running, 2=Succeeded, 3=Error, 4=KillRequested, 5=RestartRequested."
	xhtmlLine          = "XHTML: Comment bodies must be XHTML with a <div> root, e.g. '<div>My comment</div>'."
	referenceCheckLine = "REFERENCES: Call `novadb_index_object_xml_link_count` first to find XML attributes still linking to these objects."
	tokenTerminalLine  = "TERMINAL: After a commit or cancel succeeds the token is dead; continue/cancel on it fails with `upload_token_terminal`. Start a new upload instead."
	irreversibleLine   = "IRREVERSIBLE: This cannot be undone."
	auditLine          = "`comment` (audit trail) and `username` (acting user, sent as X-CmsApi-Username) are optional."
	continueLine       = "Pass the previous response's `continue` token to fetch the next page; it is absent on the last page."
)

func takeDefaultText(def int) string {
	return fmt.Sprintf("`take` defaults to %d.", def)
}

func buildToolDescriptions(cfg Config) map[string]string {
	mode := cfg.PayloadMode
	if mode == "" {
		mode = PayloadModeDisk
	}
	inlineMax := normalizedInlineMaxBytes(cfg.InlineMaxBytes)

	var downloadEffects, uploadRequires string
	switch mode {
	case PayloadModeInline:
		downloadEffects = fmt.Sprintf("Returns the content directly: text as-is, binary data as `[base64] <data>`. Bodies above %s fail with `payload_too_large`; `targetPath` is ignored.", humanize.IBytes(uint64(inlineMax)))
		uploadRequires = fmt.Sprintf("`contentBase64` (decoded size at most %s) and `filename` are required; `sourcePath` is rejected.", humanize.IBytes(uint64(inlineMax)))
	default:
		downloadEffects = "Streams the content into the workspace directory and returns metadata `{filePath, sizeBytes, size, contentType}` instead of the content. Optional `targetPath` must be relative to the workspace; absolute or escaping paths fail with `path_escape`."
		uploadRequires = "`sourcePath` (relative to the workspace directory) is required; `filename` defaults to its basename. `contentBase64` is rejected."
	}
	readRetry := "Safe to retry; read-only."
	writeRetry := "Not idempotent. On transport errors read the data back before retrying."

	return map[string]string{
		toolCMSGetObject: formatToolDescription(toolContract{
			Top:      []string{inheritedLine},
			Purpose:  "Fetch one CMS object with its meta (id, typeRef, apiIdentifier) and values as attribute/language/variant tuples.",
			UseWhen:  "You know the object ID, GUID or ApiIdentifier and need its current, authoritative values.",
			Requires: "`branch` (branch ID or 'draft') and `id` are required. Optional `attributes`, `variants`, `languages` are comma-separated filters.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Edit with `novadb_cms_update_objects`, sending the complete set for multi-value attributes.",
		}),
		toolCMSGetObjects: formatToolDescription(toolContract{
			Top:      []string{inheritedLine},
			Purpose:  "Fetch several CMS objects in one call. Returns `{objects: [...]}`.",
			UseWhen:  "You have a list of IDs, for example from an index search, and need full values.",
			Requires: "`branch` and `ids` (comma-separated IDs, GUIDs or ApiIdentifiers) are required.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Use `novadb_cms_update_objects` to change values.",
		}),
		toolCMSGetTypedObject: formatToolDescription(toolContract{
			Top:      []string{inheritedLine, preferIndexLine},
			Purpose:  "List objects of one type page by page.",
			UseWhen:  "You browse the schema or enumerate a small type. Meta-types (typeRef=0) are large: restrict `attributes` (e.g. '1000') and keep `take` small.",
			Requires: "`branch` and `type` are required. " + takeDefaultText(defaultToolTake) + " " + continueLine,
			Effects:  "Read-only. Response carries `continue` while more pages exist.",
			Retry:    readRetry,
			Next:     "Repeat with the returned `continue` token until it is absent.",
		}),
		toolCMSCreateObjects: formatToolDescription(toolContract{
			Top:      []string{multiValueLine},
			Purpose:  "Create one or more CMS objects. Returns `{createdObjectIds: [...]}`.",
			UseWhen:  "New objects must be added to a branch.",
			Requires: "`branch` and `objects` are required; each object needs `meta.typeRef` and its `values`. Values are string, number, boolean or null. " + auditLine,
			Effects:  "Writes to the branch.",
			Retry:    writeRetry,
			Next:     "Fetch the created objects with `novadb_cms_get_object` to see server-assigned data.",
		}),
		toolCMSUpdateObjects: formatToolDescription(toolContract{
			Top:      []string{setSemanticsLine, multiValueLine},
			Purpose:  "Update values of existing CMS objects. Returns `{updatedObjects, createdValues}`.",
			UseWhen:  "Existing objects need changed values.",
			Requires: "`branch` and `objects` are required; each object needs `meta.id` or `meta.guid` plus `meta.typeRef`. Single-value attributes may be sent alone. " + auditLine,
			Effects:  "Overwrites the sent attributes; omitted multi-value entries are deleted.",
			Retry:    "Idempotent when the full value set is resent.",
			Next:     "Read back with `novadb_cms_get_object` (`inherited=true`) to confirm.",
		}),
		toolCMSDeleteObjects: formatToolDescription(toolContract{
			Top:      []string{referenceCheckLine},
			Purpose:  "Soft-delete objects (restorable). Returns `{deletedObjects}`.",
			UseWhen:  "Objects are no longer needed.",
			Requires: "`branch` and `objectIds` (IDs, GUIDs or ApiIdentifiers) are required. " + auditLine,
			Effects:  "Marks the objects deleted.",
			Retry:    "Safe to retry; already deleted objects are not counted again.",
			Next:     "Verify with `novadb_cms_get_typed_objects` using `deleted=true` if needed.",
		}),

		toolCMSGetBranch: formatToolDescription(toolContract{
			Top:      []string{branchAttrsLine},
			Purpose:  "Fetch one branch as an object with meta and values.",
			UseWhen:  "You need a branch's name, parent, type, state, due date or assignee.",
			Requires: "`id` (branch ID or 'draft') is required. Optional `attributes`, `variants`, `languages` filters.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Use the branch ID as `branch` in object and index tools.",
		}),
		toolCMSCreateBranch: formatToolDescription(toolContract{
			Top:      []string{branchAttrsLine},
			Purpose:  "Create a branch. Returns `{createdObjectIds}`.",
			UseWhen:  "A new work branch is needed.",
			Requires: "`values` are required and must include attribute 1000 (one entry per language) and 4000 (parent branch ID). " + auditLine,
			Effects:  "Creates the branch.",
			Retry:    writeRetry,
			Next:     "Fetch it with `novadb_cms_get_branch`.",
		}),
		toolCMSUpdateBranch: formatToolDescription(toolContract{
			Top:      []string{branchAttrsLine},
			Purpose:  "Change branch properties. Only the sent values change. Returns `{updatedObjects}`.",
			UseWhen:  "A branch's name, state, due date or assignee changes.",
			Requires: "`id` and `values` are required. " + auditLine,
			Effects:  "Writes the sent values.",
			Retry:    "Idempotent for the same values.",
			Next:     "Read back with `novadb_cms_get_branch`.",
		}),
		toolCMSDeleteBranch: formatToolDescription(toolContract{
			Top:      []string{irreversibleLine},
			Purpose:  "Permanently delete a branch.",
			UseWhen:  "The branch and its work are no longer wanted.",
			Requires: "`id` is required. " + auditLine,
			Effects:  "Removes the branch.",
			Retry:    "A retry after success fails with not_found.",
			Next:     "None.",
		}),

		toolCMSGetComments: formatToolDescription(toolContract{
			Purpose:  "List comments filtered by branch, object, author or deleted status. Bodies are XHTML.",
			UseWhen:  "You need the discussion on an object or branch.",
			Requires: "All filters are optional. " + takeDefaultText(defaultToolTake) + " " + continueLine,
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Use `novadb_index_search_comments` for text search across comments.",
		}),
		toolCMSGetComment: formatToolDescription(toolContract{
			Purpose:  "Fetch one comment with body, author, timestamps and object reference.",
			UseWhen:  "You know the comment ID.",
			Requires: "`commentId` is required.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Edit with `novadb_cms_update_comment`.",
		}),
		toolCMSCreateComment: formatToolDescription(toolContract{
			Top:      []string{xhtmlLine},
			Purpose:  "Comment on an object. Returns `{id}`.",
			UseWhen:  "You need to leave a note on an object.",
			Requires: "`branchId`, `objectRef` and `body` are required; `username` is optional.",
			Effects:  "Creates a comment.",
			Retry:    writeRetry,
			Next:     "Fetch it with `novadb_cms_get_comment`.",
		}),
		toolCMSUpdateComment: formatToolDescription(toolContract{
			Top:      []string{xhtmlLine},
			Purpose:  "Replace a comment body.",
			UseWhen:  "A comment needs correcting.",
			Requires: "`commentId` and `body` are required; `username` is optional.",
			Effects:  "Overwrites the body. The server answers with no content.",
			Retry:    "Idempotent for the same body.",
			Next:     "Read back with `novadb_cms_get_comment`.",
		}),
		toolCMSDeleteComment: formatToolDescription(toolContract{
			Top:      []string{irreversibleLine},
			Purpose:  "Permanently delete a comment.",
			UseWhen:  "A comment must be removed.",
			Requires: "`commentId` is required; `username` is optional.",
			Effects:  "Removes the comment. The server answers with no content.",
			Retry:    "A retry after success fails with not_found.",
			Next:     "None.",
		}),

		toolCMSCodeGeneratorTypes: formatToolDescription(toolContract{
			Purpose:  "Generate C# model classes for the object types of a branch.",
			UseWhen:  "You need typed models for many types at once.",
			Requires: "`branch` and `language` ('csharp' is the only supported value) are required. Optional `ids` (comma-separated type IDs) and `targetPath` (default `codegen-<branch>-<language>.cs`).",
			Effects:  downloadEffects,
			Retry:    readRetry,
			Next:     "Use `novadb_cms_get_code_generator_type` for a single type inline.",
		}),
		toolCMSCodeGeneratorType: formatToolDescription(toolContract{
			Purpose:  "Generate the C# model class for one object type and return the source code.",
			UseWhen:  "You need the typed model of a single type.",
			Requires: "`branch`, `language` ('csharp') and `type` (ID, GUID or ApiIdentifier) are required.",
			Effects:  "Read-only. Returns source text.",
			Retry:    readRetry,
			Next:     "None.",
		}),

		toolCMSGetJobs: formatToolDescription(toolContract{
			Top:      []string{jobStatesLine},
			Purpose:  "List server-side jobs of a branch. Returns `{jobs, continue}`.",
			UseWhen:  "You look for running or finished imports, exports or other jobs.",
			Requires: "`branchId` is required. Optional filters `definitionRef`, `state` (0..5), `triggerRef`, `createdBy`, `isDeleted`. " + takeDefaultText(defaultToolTake) + " " + continueLine,
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Inspect one job with `novadb_cms_get_job`.",
		}),
		toolCMSGetJob: formatToolDescription(toolContract{
			Top:      []string{jobStatesLine},
			Purpose:  "Fetch one job: state, definition, branch, progress, timestamps, parameters.",
			UseWhen:  "You poll a job you created or inspect a known job.",
			Requires: "`jobId` is required.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "When finished, read logs with `novadb_cms_get_job_logs` or artifacts with `novadb_cms_get_job_artifacts`.",
		}),
		toolCMSGetJobLogs: formatToolDescription(toolContract{
			Purpose:  "Download a job's execution log.",
			UseWhen:  "A job failed or you need its progress output.",
			Requires: "`jobId` is required. Optional `targetPath` (default `job-<jobId>-logs.txt`).",
			Effects:  downloadEffects,
			Retry:    readRetry,
			Next:     "None.",
		}),
		toolCMSGetJobMetrics: formatToolDescription(toolContract{
			Purpose:  "Fetch runtime metrics (CPU, memory, uptime) of a job as data points.",
			UseWhen:  "You diagnose a slow or heavy job.",
			Requires: "`jobId` is required; `maxItems` optionally caps the number of points.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "None.",
		}),
		toolCMSGetJobProgress: formatToolDescription(toolContract{
			Purpose:  "Fetch the current progress of a job.",
			UseWhen:  "A job is running and you need to know how far it got.",
			Requires: "`jobId` is required.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Poll again or check `novadb_cms_get_job` for the final state.",
		}),
		toolCMSCreateJob: formatToolDescription(toolContract{
			Purpose:  "Start a server-side job such as an import or export. Returns `{id, state}`.",
			UseWhen:  "Work must run on the server against a branch.",
			Requires: "`branchId` and `jobDefinitionId` are required. Optional `scopeIds`, `objIds`, `parameters` (name plus values), `inputFile` (token from `novadb_cms_job_input_upload` plus original name), `language`, `username`.",
			Effects:  "Queues a job.",
			Retry:    writeRetry,
			Next:     "Poll with `novadb_cms_get_job`.",
		}),
		toolCMSUpdateJob: formatToolDescription(toolContract{
			Top:      []string{jobStatesLine},
			Purpose:  "Request a job state change or set its retention.",
			UseWhen:  "A job must be killed (state 4) or restarted (state 5), or kept longer.",
			Requires: "`jobId` is required. `state` must be 4 or 5 when given; `retainUntil` is an RFC 3339 date-time. Unset fields are sent as null.",
			Effects:  "Updates the job.",
			Retry:    "Idempotent for the same values.",
			Next:     "Poll with `novadb_cms_get_job`.",
		}),
		toolCMSDeleteJob: formatToolDescription(toolContract{
			Top:      []string{irreversibleLine},
			Purpose:  "Permanently delete a job and its artifacts.",
			UseWhen:  "A job and its output are no longer needed.",
			Requires: "`jobId` is required; `username` is optional.",
			Effects:  "Removes the job.",
			Retry:    "A retry after success fails with not_found.",
			Next:     "None.",
		}),
		toolCMSGetJobObjectIDs: formatToolDescription(toolContract{
			Purpose:  "Fetch the IDs of objects a finished job processed.",
			UseWhen:  "You need to follow up on what a job touched.",
			Requires: "`jobId` is required.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Fetch the objects with `novadb_cms_get_objects`.",
		}),
		toolCMSGetJobArtifacts: formatToolDescription(toolContract{
			Purpose:  "List the files a job produced.",
			UseWhen:  "A job finished and you need its output.",
			Requires: "`jobId` is required.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Download one with `novadb_cms_get_job_artifact` or all with `novadb_cms_get_job_artifacts_zip`.",
		}),
		toolCMSGetJobArtifact: formatToolDescription(toolContract{
			Purpose:  "Download one job artifact by path.",
			UseWhen:  "You need a single output file of a job.",
			Requires: "`jobId` and `path` are required. Optional `targetPath` (default `job-<jobId>-artifacts/<path>`).",
			Effects:  downloadEffects,
			Retry:    readRetry,
			Next:     "None.",
		}),
		toolCMSGetJobArtifactsZ: formatToolDescription(toolContract{
			Purpose:  "Download all artifacts of a job as one ZIP archive.",
			UseWhen:  "You need every output file of a job.",
			Requires: "`jobId` is required. Optional `targetPath` (default `job-<jobId>-artifacts.zip`).",
			Effects:  downloadEffects,
			Retry:    readRetry,
			Next:     "None.",
		}),

		toolCMSJobInputUpload: formatToolDescription(toolContract{
			Purpose:  "Upload the first chunk of a job input file. Returns `{token}`.",
			UseWhen:  "A job (e.g. an import) needs an input file.",
			Requires: uploadRequires,
			Effects:  "Opens an upload on the server.",
			Retry:    "Not idempotent; a retry opens a second upload.",
			Next:     "Append chunks with `novadb_cms_job_input_continue`, then pass `{token, name}` as `inputFile` to `novadb_cms_create_job`.",
		}),
		toolCMSJobInputContinue: formatToolDescription(toolContract{
			Top:      []string{tokenTerminalLine},
			Purpose:  "Append a chunk to a job input upload.",
			UseWhen:  "The input file is larger than one chunk.",
			Requires: "`token` is required. " + uploadRequires,
			Effects:  "Appends to the upload.",
			Retry:    "Not idempotent; a retry appends the chunk twice.",
			Next:     "Pass the token to `novadb_cms_create_job`.",
		}),
		toolCMSJobInputCancel: formatToolDescription(toolContract{
			Top:      []string{tokenTerminalLine},
			Purpose:  "Cancel a job input upload and discard its data.",
			UseWhen:  "The upload is no longer needed.",
			Requires: "`token` is required.",
			Effects:  "Discards the upload.",
			Retry:    "Do not retry after success.",
			Next:     "Start a new upload if needed.",
		}),
		toolCMSGetFile: formatToolDescription(toolContract{
			Purpose:  "Download a stored file by name.",
			UseWhen:  "You need a binary referenced by an object or returned by an upload.",
			Requires: "`name` is required: fileIdentifier plus extension, e.g. '5fe618811cca585a2826a2da06e3ce1b.png'. On binary objects read attribute 11000 for the identifier and 11005 for the extension. Optional `targetPath` (default `<name>`).",
			Effects:  downloadEffects,
			Retry:    readRetry,
			Next:     "None.",
		}),
		toolCMSUploadFile: formatToolDescription(toolContract{
			Purpose:  "Start a file upload. Returns `{token}`, or the stored file `{fileIdentifier, extension, fileName, size}` when committed.",
			UseWhen:  "A binary must be stored, e.g. for an image attribute.",
			Requires: "`extension` (e.g. 'png') and `commit` are required; set `commit=true` for single-chunk uploads. " + uploadRequires,
			Effects:  "Opens or completes an upload on the server.",
			Retry:    "Not idempotent; a retry opens a second upload.",
			Next:     "If not committed, send more chunks with `novadb_cms_upload_file_continue` and `commit=true` on the last one.",
		}),
		toolCMSUploadFileContinue: formatToolDescription(toolContract{
			Top:      []string{tokenTerminalLine},
			Purpose:  "Append a chunk to a file upload; `commit=true` on the final chunk stores the file.",
			UseWhen:  "The file is larger than one chunk.",
			Requires: "`token`, `extension` and `commit` are required. " + uploadRequires,
			Effects:  "Appends to or completes the upload.",
			Retry:    "Not idempotent; a retry appends the chunk twice.",
			Next:     "Reference the returned file identifier from object values.",
		}),
		toolCMSUploadFileCancel: formatToolDescription(toolContract{
			Top:      []string{tokenTerminalLine},
			Purpose:  "Cancel a file upload and discard its data.",
			UseWhen:  "The upload is no longer needed.",
			Requires: "`token` is required.",
			Effects:  "Discards the upload.",
			Retry:    "Do not retry after success.",
			Next:     "Start a new upload if needed.",
		}),

		toolIndexSearchObjects: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Search objects with full-text, attribute filters, sorting and paging.",
			UseWhen:  "You look for data objects. Use `filter.searchPhrase` for quick text search or `filter.filters` for attribute conditions (compareOperator 0=Eq, 1=NotEq, 2=LT, 3=LTE, 4=GT, 5=GTE, 6=Wildcard with *, 7=ObjRef).",
			Requires: "`branch` is required. `sortBy` entries use 0=Score, 1=ObjId, 2=TypeRef, 3=DisplayName, 4=Modified, 5=ModifiedBy, 6=Attribute (needs `attrId`). " + takeDefaultText(defaultToolTake),
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Fetch full values with `novadb_cms_get_objects`.",
		}),
		toolIndexCountObjects: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Count objects matching a filter.",
			UseWhen:  "You want the size of a result set before searching.",
			Requires: "`branch` is required; `filter` is optional (all objects).",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Search with `novadb_index_search_objects`.",
		}),
		toolIndexObjectOccurrences: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Facet counts by type, modifier or deleted flag for objects matching a filter.",
			UseWhen:  "You need analytics or a dashboard view.",
			Requires: "`branch` is required. Enable facets with `getTypeOccurrences`, `getModifiedByOccurrences`, `getDeletedOccurrences` (all default false). " + takeDefaultText(defaultToolTake),
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Drill down with `novadb_index_search_objects`.",
		}),
		toolIndexSuggestions: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Type-ahead suggestions of display names or attribute values.",
			UseWhen:  "You complete a partial name or value.",
			Requires: fmt.Sprintf("`branch` is required. Defaults: suggestDisplayName=true, take=%d, sortByValue=false, analyze=true, fuzzy=false, fuzzyMinSimilarity=0.5 (0..1), fuzzyPrefixLength=0.", defaultToolSuggestionTake),
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Search for the chosen value with `novadb_index_search_objects`.",
		}),
		toolIndexSearchComments: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Search comments by text, author or mentioned user.",
			UseWhen:  "You look for discussions across objects.",
			Requires: "`branch` is required. `sortField` 0=Id, 1=User, 2=Created, 3=Modified, 4=ObjectId, 5=ObjectType; `sortReverse` optional. " + takeDefaultText(defaultToolTake),
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Fetch a comment with `novadb_cms_get_comment`.",
		}),
		toolIndexCountComments: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Count comments matching a filter.",
			UseWhen:  "You want the size of a comment result set.",
			Requires: "`branch` is required; `filter` is optional.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Search with `novadb_index_search_comments`.",
		}),
		toolIndexWorkItemOccurrence: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Count changed objects (work items) per branch.",
			UseWhen:  "You need a global overview of activity. No branch parameter: the result spans all branches.",
			Requires: "Nothing. " + takeDefaultText(defaultToolTake),
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Inspect a busy branch with `novadb_cms_get_branch`.",
		}),
		toolIndexCommentOccurrences: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Facet counts of comments by author, mentioned user or object type.",
			UseWhen:  "You need comment analytics.",
			Requires: "`branch` is required. Enable facets with `getUserOccurrences`, `getMentionedUsersOccurrences`, `getObjectTypeOccurrences` (all default false). " + takeDefaultText(defaultToolTake),
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Drill down with `novadb_index_search_comments`.",
		}),
		toolIndexObjectXMLLinkCount: formatToolDescription(toolContract{
			Top:      []string{indexLagLine},
			Purpose:  "Count objects whose XML attributes (SimpleHtml, VisualDocument) link to the given objects.",
			UseWhen:  "Before deleting objects, to find references.",
			Requires: "`branch` and `objectIds` are required.",
			Effects:  "Read-only.",
			Retry:    readRetry,
			Next:     "Delete unreferenced objects with `novadb_cms_delete_objects`.",
		}),
		toolIndexMatchStrings: formatToolDescription(toolContract{
			Purpose:  "Test which strings match a Lucene query.",
			UseWhen:  "You debug a search expression.",
			Requires: "`query` and `strings` are required; `useOrOperator` (default false) joins terms with OR instead of AND.",
			Effects:  "Read-only; branch independent.",
			Retry:    readRetry,
			Next:     "Use the query in `novadb_index_search_objects` (`filter.fullText`).",
		}),
	}
}

func defaultServerInstructions(cfg Config) string {
	mode := cfg.PayloadMode
	if mode == "" {
		mode = PayloadModeDisk
	}
	return strings.Join([]string{
		"NovaDB tools: `novadb_cms_*` read and write objects, branches, comments, jobs and files through the CMS API; `novadb_index_*` search and analyse through the Index API.",
		"Use 'draft' as branch for the default working branch. Set `inherited=true` on CMS reads.",
		"The index lags behind CMS writes; read your own writes back through the CMS tools.",
		fmt.Sprintf("Binary payloads use %s mode.", mode),
	}, "\n")
}
