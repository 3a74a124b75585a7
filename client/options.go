// Package client provides a high-level Soulseek client.
package client

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kcarretto/soulmesh/messages/peer"
)

const (
	// DefaultServerAddress is the official Soulseek server.
	DefaultServerAddress = "vps.slsknet.org:2271"

	// DefaultConnectTimeout is the default timeout for establishing a connection.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultMessageTimeout is the default timeout for waiting on message responses.
	DefaultMessageTimeout = 5 * time.Second

	// DefaultMaxConcurrentDownloads is the default limit for concurrent downloads.
	// 0 means unlimited.
	DefaultMaxConcurrentDownloads = 10

	// DefaultMaxConcurrentUploads is the default limit for concurrent uploads.
	// 0 means unlimited.
	DefaultMaxConcurrentUploads = 10

	// DefaultSlotCleanupInterval is how often idle per-user upload slots are cleaned up.
	DefaultSlotCleanupInterval = 15 * time.Minute

	// DefaultSlotIdleThreshold is how long a per-user slot must be idle before cleanup.
	DefaultSlotIdleThreshold = 15 * time.Minute

	// DefaultDistributedChildLimit caps how many children we accept in the
	// distributed search-request tree.
	DefaultDistributedChildLimit = 10

	// DefaultNoParentGracePeriod is how long we wait without a distributed
	// parent before self-promoting to branch root.
	DefaultNoParentGracePeriod = 30 * time.Second

	// DefaultUserEndpointCacheTTL bounds how long a resolved peer endpoint
	// is trusted before GetPeerAddress is re-queried.
	DefaultUserEndpointCacheTTL = 10 * time.Minute
)

// DiagnosticLevel filters which internal diagnostic events are published
// on Client.Events() and logged, from least to most verbose.
type DiagnosticLevel int

// Diagnostic levels, least to most verbose.
const (
	DiagnosticLevelWarn DiagnosticLevel = iota
	DiagnosticLevelInfo
	DiagnosticLevelDebug
)

// Options configures the Soulseek client.
type Options struct {
	// ListenPort is the port for incoming peer connections (1024-65535).
	// Set to 0 if not accepting incoming connections.
	// Default: 0
	ListenPort uint32

	// EnableListener starts the TCP acceptor for incoming P/F/D connections
	// as part of Login, instead of requiring a separate StartListener call.
	// Requires ListenPort to be nonzero.
	// Default: false
	EnableListener bool

	// ServerAddress is the Soulseek server address.
	// Default: "vps.slsknet.org:2271"
	ServerAddress string

	// ConnectTimeout is the timeout for establishing connection.
	// Default: 10s
	ConnectTimeout time.Duration

	// MessageTimeout is the timeout for waiting on message responses.
	// Default: 5s
	MessageTimeout time.Duration

	// MaxConcurrentDownloads limits concurrent downloads (0 = unlimited).
	// Default: 10
	MaxConcurrentDownloads int

	// MaxConcurrentUploads limits concurrent uploads (0 = unlimited).
	// Default: 10
	MaxConcurrentUploads int

	// SlotCleanupInterval controls how often idle per-user upload slots are cleaned up.
	// Set to 0 to disable automatic cleanup.
	// Default: 15 minutes
	SlotCleanupInterval time.Duration

	// SlotIdleThreshold is how long a per-user slot must be idle before cleanup.
	// Default: 15 minutes
	SlotIdleThreshold time.Duration

	// FileSharer is the shared file index for uploads.
	// If nil, no files are shared.
	FileSharer *FileSharer

	// UploadValidator is consulted before accepting a QueueDownload from a
	// peer, in addition to the FileSharer lookup. Returning a non-nil error
	// denies the request with that error's message.
	// Default: nil (no additional validation)
	UploadValidator func(username, filename string) error

	// StartingToken seeds the atomic counter used for search/transfer/
	// solicitation tokens. Mostly useful for deterministic tests.
	// Default: 0
	StartingToken uint32

	// EnableDistributedNetwork joins the distributed search-request mesh:
	// seeks a parent via NetInfo candidates and accepts children up to
	// DistributedChildLimit.
	// Default: false
	EnableDistributedNetwork bool

	// AcceptDistributedChildren controls whether incoming "D"-type
	// connections are adopted as children. Ignored if
	// EnableDistributedNetwork is false.
	// Default: true
	AcceptDistributedChildren bool

	// DistributedChildLimit caps the number of accepted children.
	// Default: 10
	DistributedChildLimit int

	// NoParentGracePeriod is how long the distributed manager waits without
	// a parent before self-promoting to branch root.
	// Default: 30s
	NoParentGracePeriod time.Duration

	// DeduplicateSearchRequests is not read by the client: the distributed
	// manager always suppresses re-resolving and re-broadcasting a search
	// request already seen on the same connection, whatever its value.
	// Default: true
	DeduplicateSearchRequests bool

	// AutoAcknowledgePrivateMessages automatically sends
	// AcknowledgePrivateMessage for every inbound PrivateMessage.
	// Default: true
	AutoAcknowledgePrivateMessages bool

	// AutoAcknowledgePrivilegeNotifications automatically acknowledges
	// NotifyPrivileges pushes from the server.
	// Default: true
	AutoAcknowledgePrivilegeNotifications bool

	// AcceptPrivateRoomInvitations is not read by the client: private-room
	// invitations are neither handled nor accepted, whatever its value.
	// Default: false
	AcceptPrivateRoomInvitations bool

	// MinimumDiagnosticLevel filters which diagnostic events are logged
	// and published on Events().
	// Default: DiagnosticLevelInfo
	MinimumDiagnosticLevel DiagnosticLevel

	// UploadRateLimit caps aggregate upload throughput in bytes/sec.
	// 0 disables limiting.
	// Default: 0
	UploadRateLimit int64

	// DownloadRateLimit caps aggregate download throughput in bytes/sec.
	// 0 disables limiting.
	// Default: 0
	DownloadRateLimit int64

	// UserEndpointCacheTTL bounds how long a resolved peer endpoint is
	// cached before GetPeerAddress is re-queried.
	// Default: 10 minutes
	UserEndpointCacheTTL time.Duration

	// Logger receives structured diagnostics from every client
	// subcomponent (session, listener, transfers, distributed manager).
	// Default: logrus.StandardLogger()
	Logger *logrus.Logger

	// BrowseResponseResolver answers a peer's BrowseRequest with this
	// node's shared folder listing. If nil, an empty BrowseResponse is
	// sent.
	// Default: nil
	BrowseResponseResolver func(username string) *peer.BrowseResponse

	// DirectoryContentsResolver answers a peer's FolderContentsRequest
	// for a specific folder. If nil, an empty listing is sent.
	// Default: nil
	DirectoryContentsResolver func(username, folder string) []peer.File

	// UserInfoResponseResolver answers a peer's InfoRequest with this
	// node's profile description and slot counts. If nil, an empty
	// InfoResponse is sent.
	// Default: nil
	UserInfoResponseResolver func(username string) *peer.InfoResponse

	// PlaceInQueueResponseResolver answers a peer's PlaceInQueueRequest
	// with this node's current queue position for that file. If nil, no
	// response is sent.
	// Default: nil
	PlaceInQueueResponseResolver func(username, filename string) uint32

	// SearchResponseResolver answers a distributed search request flooded
	// down the search-mesh tree with this node's local shared-file
	// matches. Returning nil, or a response with an empty Files list,
	// means no match — the common case, since most relayed searches
	// don't touch this node's share. A non-nil response with at least
	// one file is sent to the searching user's peer message connection;
	// Username and Token are overwritten with the correct values before
	// sending, so the resolver only needs to fill in Files and the
	// optional slot/speed/queue fields.
	// Default: nil (EnableDistributedNetwork nodes answer no searches)
	SearchResponseResolver func(username string, token uint32, query string) *peer.SearchResponse
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		ListenPort:                            0,
		ServerAddress:                         DefaultServerAddress,
		ConnectTimeout:                        DefaultConnectTimeout,
		MessageTimeout:                        DefaultMessageTimeout,
		MaxConcurrentDownloads:                DefaultMaxConcurrentDownloads,
		MaxConcurrentUploads:                  DefaultMaxConcurrentUploads,
		SlotCleanupInterval:                   DefaultSlotCleanupInterval,
		SlotIdleThreshold:                     DefaultSlotIdleThreshold,
		AcceptDistributedChildren:             true,
		DistributedChildLimit:                 DefaultDistributedChildLimit,
		NoParentGracePeriod:                   DefaultNoParentGracePeriod,
		DeduplicateSearchRequests:             true,
		AutoAcknowledgePrivateMessages:        true,
		AutoAcknowledgePrivilegeNotifications: true,
		MinimumDiagnosticLevel:                DiagnosticLevelInfo,
		UserEndpointCacheTTL:                  DefaultUserEndpointCacheTTL,
		Logger:                                logrus.StandardLogger(),
	}
}
