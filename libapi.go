package crudflow

import (
	"github.com/drblury/crudflow/internal/app"
	runtimepkg "github.com/drblury/crudflow/internal/runtime"
	ce "github.com/drblury/crudflow/internal/runtime/cloudevents"
	configpkg "github.com/drblury/crudflow/internal/runtime/config"
	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
	idspkg "github.com/drblury/crudflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/crudflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/crudflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/crudflow/internal/runtime/metadata"
	"github.com/drblury/crudflow/internal/runtime/rpc"
	"github.com/drblury/crudflow/internal/runtime/schema"
	"github.com/drblury/crudflow/internal/runtime/store"
	"github.com/drblury/crudflow/internal/runtime/viewset"
	newtransport "github.com/drblury/crudflow/transport"
)

type (
	Config           = configpkg.Config
	CollectionConfig = configpkg.CollectionConfig

	App             = app.App
	AppDependencies = app.Dependencies

	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	ViewSet           = viewset.ViewSet
	ViewSetConfig     = viewset.Config
	ViewSetDeps       = viewset.Dependencies
	ViewSetState      = viewset.State
	Session           = viewset.Session
	Capability        = viewset.Capability
	List              = viewset.List
	Create            = viewset.Create
	Update            = viewset.Update
	Delete            = viewset.Delete
	Result            = viewset.Result
	RegistrationError = viewset.RegistrationError

	ObjectStore  = store.ObjectStore
	Record       = store.Record
	Filter       = store.Filter
	StoreOptions = store.Options

	Schema          = schema.Schema
	SchemaValidator = schema.Validator

	Procedure   = rpc.Procedure
	Call        = rpc.Call
	RPCError    = rpc.Error
	RPCRegistry = rpc.Registry

	RouterMiddleware = runtimepkg.RouterMiddleware
	RetryPolicy      = runtimepkg.RetryPolicy

	BusRequest = runtimepkg.BusRequest
	BusReply   = runtimepkg.BusReply

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	UnprocessableMessageError = runtimepkg.UnprocessableMessageError

	ProcedureInfo         = runtimepkg.ProcedureInfo
	ProcedureStats        = runtimepkg.ProcedureStats
	StatsSnapshot         = runtimepkg.StatsSnapshot
	ValidationError       = errspkg.ValidationError
	ConfigValidationError = errspkg.ConfigValidationError

	// Call lifecycle hooks
	CallContext = runtimepkg.CallContext
	CallHooks   = runtimepkg.CallHooks

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// CloudEvents types
	Event         = ce.Event
	EventEncoding = ce.Encoding

	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
	Transport             = newtransport.Transport
)

const (
	ActionList   = viewset.ActionList
	ActionCreate = viewset.ActionCreate
	ActionUpdate = viewset.ActionUpdate
	ActionDelete = viewset.ActionDelete

	ResultSuccess = viewset.ResultSuccess
	ResultError   = viewset.ResultError

	EncodingJSON     = ce.EncodingJSON
	EncodingProtobuf = ce.EncodingProtobuf

	ErrorCategoryNone          = runtimepkg.ErrorCategoryNone
	ErrorCategoryInvalidParams = runtimepkg.ErrorCategoryInvalidParams
	ErrorCategoryCanceled      = runtimepkg.ErrorCategoryCanceled
	ErrorCategoryStore         = runtimepkg.ErrorCategoryStore
	ErrorCategoryOther         = runtimepkg.ErrorCategoryOther

	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyProcedure     = metadatapkg.KeyProcedure
	MetadataKeyReplyTo       = metadatapkg.KeyReplyTo
)

var (
	NewApp          = app.New
	NewService      = runtimepkg.NewService
	LoadConfig      = configpkg.Load
	ParseConfig     = configpkg.Parse
	ValidateConfig  = configpkg.ValidateConfig
	AppCapabilities = app.Capabilities

	NewViewSet          = viewset.New
	DefaultCapabilities = viewset.DefaultCapabilities
	ProcedureName       = viewset.ProcedureName
	ChangedTopic        = viewset.ChangedTopic
	DeletedTopic        = viewset.DeletedTopic
	ReplyTopic          = runtimepkg.ReplyTopic

	OpenStore          = store.Open
	RegisterStore      = store.Register
	NewSchemaValidator = schema.NewValidator
	InvalidParams      = rpc.InvalidParams

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Call lifecycle hooks
	CallHooksMiddleware = runtimepkg.CallHooksMiddleware
	LoggingHooks        = runtimepkg.LoggingHooks
	AlertingHooks       = runtimepkg.AlertingHooks

	NewCloudEvent    = ce.New
	EventToMessage   = ce.ToMessage
	EventFromMessage = ce.FromMessage

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrSessionRequired     = errspkg.ErrSessionRequired
	ErrStoreRequired       = errspkg.ErrStoreRequired
	ErrValidatorRequired   = errspkg.ErrValidatorRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrViewSetNameRequired = errspkg.ErrViewSetNameRequired
	ErrURIPrefixRequired   = errspkg.ErrURIPrefixRequired
	ErrSchemaRequired      = errspkg.ErrSchemaRequired
	ErrProcedureRequired   = errspkg.ErrProcedureRequired
	ErrProcedureExists     = errspkg.ErrProcedureExists
	ErrProcedureNotFound   = errspkg.ErrProcedureNotFound
	ErrPublisherRequired   = errspkg.ErrPublisherRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrUnknownStore        = errspkg.ErrUnknownStore
	ErrStoreClosed         = errspkg.ErrStoreClosed
	ErrStoreFailure        = errspkg.ErrStoreFailure

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopLogger              = loggingpkg.NewNopLogger

	BusRequestMetadata = metadatapkg.Request
	WithCollection     = metadatapkg.WithCollection
	CreateULID         = idspkg.CreateULID
)

// NewEntryServiceLogger adapts entry-style loggers such as logrus.Entry.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
