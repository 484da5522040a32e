package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/novadb/novadb-mcp-demo/client"
	"github.com/novadb/novadb-mcp-demo/cms"
	"github.com/novadb/novadb-mcp-demo/index"
	"github.com/novadb/novadb-mcp-demo/internal/svcfields"
	"github.com/novadb/novadb-mcp-demo/internal/version"
	"pkt.systems/pslog"
)

// Config controls the NovaDB MCP server.
type Config struct {
	// Host is the NovaDB host name. A full URL is accepted; only its host
	// name is used.
	Host          string
	CMSUser       string
	CMSPassword   string
	IndexUser     string
	IndexPassword string
	// CMSBaseURL and IndexBaseURL override the URLs derived from Host.
	CMSBaseURL   string
	IndexBaseURL string

	PayloadMode    PayloadMode
	WorkspaceDir   string
	InlineMaxBytes int64
	// HTTPTimeout bounds each NovaDB request; zero disables the bound.
	HTTPTimeout time.Duration
	Version     string
}

// Server is the MCP service contract.
type Server interface {
	Run(context.Context) error
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config Config
	Logger pslog.Logger
	// HTTPClient is used for NovaDB requests when set.
	HTTPClient *http.Client
	// Fs backs the disk payload strategy; the OS filesystem when nil.
	Fs afero.Fs
}

type server struct {
	cfg          Config
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	toolsLog     pslog.Logger
	payloadLog   pslog.Logger

	cms         *cms.Client
	index       *index.Client
	payload     payloadStrategy
	uploads     *uploadLedger
	instruments *toolInstruments
}

// NewServer validates cfg and constructs the NovaDB MCP server.
func NewServer(req NewServerRequest) (Server, error) {
	return newServer(req)
}

func newServer(req NewServerRequest) (*server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(context.Background(), os.Stderr).With("app", "novadb-mcp")
	}
	s := &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: svcfields.WithSubsystem(logger, svcfields.ServerLifecycle),
		toolsLog:     svcfields.WithSubsystem(logger, svcfields.MCPTools),
		payloadLog:   svcfields.WithSubsystem(logger, svcfields.MCPPayload),
		uploads:      newUploadLedger(defaultUploadLedgerSize),
	}
	s.instruments = newToolInstruments(s.toolsLog)

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithHTTPTimeout(cfg.HTTPTimeout),
		client.WithUserAgent("novadb-mcp/" + cfg.Version),
	}
	if req.HTTPClient != nil {
		opts = append(opts, client.WithHTTPClient(req.HTTPClient))
	}
	cmsTransport, err := client.New(cfg.CMSBaseURL, cfg.CMSUser, cfg.CMSPassword, opts...)
	if err != nil {
		return nil, fmt.Errorf("cms client: %w", err)
	}
	indexTransport, err := client.New(cfg.IndexBaseURL, cfg.IndexUser, cfg.IndexPassword, opts...)
	if err != nil {
		return nil, fmt.Errorf("index client: %w", err)
	}
	s.cms = cms.NewClient(cmsTransport)
	s.index = index.NewClient(indexTransport)

	s.payload, err = newPayloadStrategy(cfg, req.Fs, s.payloadLog)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or the host disconnects.
func (s *server) Run(ctx context.Context) error {
	s.lifecycleLog.Info("server.lifecycle.mcp.start",
		"cms_base_url", s.cfg.CMSBaseURL,
		"index_base_url", s.cfg.IndexBaseURL,
		"payload_mode", s.cfg.PayloadMode,
		"workspace_dir", s.cfg.WorkspaceDir,
		"version", s.cfg.Version,
	)
	err := s.mcpServer().Run(ctx, &mcpsdk.StdioTransport{})
	if err == nil || errors.Is(err, context.Canceled) {
		s.lifecycleLog.Info("server.lifecycle.mcp.stop")
		return nil
	}
	s.lifecycleLog.Error("server.lifecycle.mcp.failed", "error", err)
	return err
}

func (s *server) mcpServer() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    version.Name,
		Version: s.cfg.Version,
	}, &mcpsdk.ServerOptions{
		Instructions: defaultServerInstructions(s.cfg),
	})
	s.registerTools(srv)
	return srv
}

func addTool[In any](s *server, srv *mcpsdk.Server, desc func(string) string, name string, h mcpsdk.ToolHandlerFor[In, any]) {
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        name,
		Description: desc(name),
	}, instrumentTool(s.instruments, name, withStructuredToolErrors(h)))
}

func (s *server) registerTools(srv *mcpsdk.Server) {
	descriptions := buildToolDescriptions(s.cfg)
	desc := func(name string) string {
		description, ok := descriptions[name]
		if !ok {
			panic(fmt.Sprintf("missing MCP tool description for %q", name))
		}
		return description
	}

	addTool(s, srv, desc, toolCMSGetObject, s.handleGetObjectTool)
	addTool(s, srv, desc, toolCMSGetObjects, s.handleGetObjectsTool)
	addTool(s, srv, desc, toolCMSGetTypedObject, s.handleGetTypedObjectsTool)
	addTool(s, srv, desc, toolCMSCreateObjects, s.handleCreateObjectsTool)
	addTool(s, srv, desc, toolCMSUpdateObjects, s.handleUpdateObjectsTool)
	addTool(s, srv, desc, toolCMSDeleteObjects, s.handleDeleteObjectsTool)

	addTool(s, srv, desc, toolCMSGetBranch, s.handleGetBranchTool)
	addTool(s, srv, desc, toolCMSCreateBranch, s.handleCreateBranchTool)
	addTool(s, srv, desc, toolCMSUpdateBranch, s.handleUpdateBranchTool)
	addTool(s, srv, desc, toolCMSDeleteBranch, s.handleDeleteBranchTool)

	addTool(s, srv, desc, toolCMSGetComments, s.handleGetCommentsTool)
	addTool(s, srv, desc, toolCMSGetComment, s.handleGetCommentTool)
	addTool(s, srv, desc, toolCMSCreateComment, s.handleCreateCommentTool)
	addTool(s, srv, desc, toolCMSUpdateComment, s.handleUpdateCommentTool)
	addTool(s, srv, desc, toolCMSDeleteComment, s.handleDeleteCommentTool)

	addTool(s, srv, desc, toolCMSCodeGeneratorTypes, s.handleCodeGeneratorTypesTool)
	addTool(s, srv, desc, toolCMSCodeGeneratorType, s.handleCodeGeneratorTypeTool)

	addTool(s, srv, desc, toolCMSGetJobs, s.handleGetJobsTool)
	addTool(s, srv, desc, toolCMSGetJob, s.handleGetJobTool)
	addTool(s, srv, desc, toolCMSGetJobLogs, s.handleGetJobLogsTool)
	addTool(s, srv, desc, toolCMSGetJobMetrics, s.handleGetJobMetricsTool)
	addTool(s, srv, desc, toolCMSGetJobProgress, s.handleGetJobProgressTool)
	addTool(s, srv, desc, toolCMSCreateJob, s.handleCreateJobTool)
	addTool(s, srv, desc, toolCMSUpdateJob, s.handleUpdateJobTool)
	addTool(s, srv, desc, toolCMSDeleteJob, s.handleDeleteJobTool)
	addTool(s, srv, desc, toolCMSGetJobObjectIDs, s.handleGetJobObjectIDsTool)
	addTool(s, srv, desc, toolCMSGetJobArtifacts, s.handleGetJobArtifactsTool)
	addTool(s, srv, desc, toolCMSGetJobArtifact, s.handleGetJobArtifactTool)
	addTool(s, srv, desc, toolCMSGetJobArtifactsZ, s.handleGetJobArtifactsZipTool)

	addTool(s, srv, desc, toolCMSJobInputUpload, s.handleJobInputUploadTool)
	addTool(s, srv, desc, toolCMSJobInputContinue, s.handleJobInputContinueTool)
	addTool(s, srv, desc, toolCMSJobInputCancel, s.handleJobInputCancelTool)

	addTool(s, srv, desc, toolCMSGetFile, s.handleGetFileTool)
	addTool(s, srv, desc, toolCMSUploadFile, s.handleUploadFileTool)
	addTool(s, srv, desc, toolCMSUploadFileContinue, s.handleUploadFileContinueTool)
	addTool(s, srv, desc, toolCMSUploadFileCancel, s.handleUploadFileCancelTool)

	addTool(s, srv, desc, toolIndexSearchObjects, s.handleSearchObjectsTool)
	addTool(s, srv, desc, toolIndexCountObjects, s.handleCountObjectsTool)
	addTool(s, srv, desc, toolIndexObjectOccurrences, s.handleObjectOccurrencesTool)
	addTool(s, srv, desc, toolIndexSuggestions, s.handleSuggestionsTool)
	addTool(s, srv, desc, toolIndexSearchComments, s.handleSearchCommentsTool)
	addTool(s, srv, desc, toolIndexCountComments, s.handleCountCommentsTool)
	addTool(s, srv, desc, toolIndexWorkItemOccurrence, s.handleWorkItemOccurrencesTool)
	addTool(s, srv, desc, toolIndexCommentOccurrences, s.handleCommentOccurrencesTool)
	addTool(s, srv, desc, toolIndexObjectXMLLinkCount, s.handleObjectXMLLinkCountTool)
	addTool(s, srv, desc, toolIndexMatchStrings, s.handleMatchStringsTool)
}

func applyDefaults(cfg *Config) {
	cfg.Host = resolveHost(cfg.Host)
	cfg.CMSUser = strings.TrimSpace(cfg.CMSUser)
	cfg.IndexUser = strings.TrimSpace(cfg.IndexUser)
	if strings.TrimSpace(cfg.CMSBaseURL) == "" && cfg.Host != "" {
		cfg.CMSBaseURL = "https://" + cfg.Host + "/apis/cms/v1"
	}
	if strings.TrimSpace(cfg.IndexBaseURL) == "" && cfg.Host != "" {
		cfg.IndexBaseURL = "https://" + cfg.Host + "/apis/index/v1"
	}
	if cfg.PayloadMode == "" {
		cfg.PayloadMode = PayloadModeDisk
	}
	if strings.TrimSpace(cfg.WorkspaceDir) == "" {
		cfg.WorkspaceDir = "."
	}
	cfg.InlineMaxBytes = normalizedInlineMaxBytes(cfg.InlineMaxBytes)
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = version.Current()
	}
}

// validateConfig reports every missing credential at once, named by the
// environment variable that supplies it.
func validateConfig(cfg Config) error {
	var missing []string
	for _, req := range []struct {
		env   string
		value string
	}{
		{"NOVA_HOST", cfg.Host},
		{"NOVA_CMS_USER", cfg.CMSUser},
		{"NOVA_CMS_PASSWORD", cfg.CMSPassword},
		{"NOVA_INDEX_USER", cfg.IndexUser},
		{"NOVA_INDEX_PASSWORD", cfg.IndexPassword},
	} {
		if strings.TrimSpace(req.value) == "" {
			missing = append(missing, req.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if _, err := ParsePayloadMode(string(cfg.PayloadMode)); err != nil {
		return err
	}
	return nil
}

// resolveHost trims raw and, when it parses as an absolute URL, reduces it
// to the host name.
func resolveHost(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}
	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Hostname()
	}
	return trimmed
}
