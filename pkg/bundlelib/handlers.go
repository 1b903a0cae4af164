package bundlelib

import "github.com/warpdl/warpbundle/pkg/logger"

type (
	// ConnectServerHandlerFunc is called before the remote version file is requested.
	ConnectServerHandlerFunc func()
	// ConnectServerSuccessHandlerFunc is called once the remote version file arrived.
	ConnectServerSuccessHandlerFunc func()
	// ConnectServerErrorHandlerFunc is called when the remote version file
	// could not be fetched or parsed.
	ConnectServerErrorHandlerFunc func(err error)
	// CheckingVersionHandlerFunc is called before local and remote versions are compared.
	CheckingVersionHandlerFunc func()
	// StartDownloadHandlerFunc is called with the stale bundles before they are enqueued.
	StartDownloadHandlerFunc func(names []string)
	// BundleDownloadedHandlerFunc is called for each finished download.
	// err is nil on success.
	BundleDownloadedHandlerFunc func(name string, err error)
	// DownloadFinishedHandlerFunc is called once every stale bundle finished.
	DownloadFinishedHandlerFunc func()
	// BatchFinishedHandlerFunc is called when the download counters reset,
	// with the number of bundles in the finished batch.
	BatchFinishedHandlerFunc func(total int)
	// BundleOriginatedHandlerFunc is called whenever a load starts reading a bundle.
	BundleOriginatedHandlerFunc func(name string)
	// InitializedHandlerFunc is called once the manifest is available.
	InitializedHandlerFunc func()
	// ErrorHandlerFunc is called with bundle-scoped errors.
	ErrorHandlerFunc func(name string, err error)
)

// Handlers are the lifecycle callbacks of a Manager. Nil fields are
// replaced by no-ops.
type Handlers struct {
	ConnectServerHandler        ConnectServerHandlerFunc
	ConnectServerSuccessHandler ConnectServerSuccessHandlerFunc
	ConnectServerErrorHandler   ConnectServerErrorHandlerFunc
	CheckingVersionHandler      CheckingVersionHandlerFunc
	StartDownloadHandler        StartDownloadHandlerFunc
	BundleDownloadedHandler     BundleDownloadedHandlerFunc
	DownloadFinishedHandler     DownloadFinishedHandlerFunc
	BatchFinishedHandler        BatchFinishedHandlerFunc
	BundleOriginatedHandler     BundleOriginatedHandlerFunc
	InitializedHandler          InitializedHandlerFunc
	ErrorHandler                ErrorHandlerFunc
}

func (h *Handlers) setDefault(l logger.Logger) {
	if h.ConnectServerHandler == nil {
		h.ConnectServerHandler = func() {}
	}
	if h.ConnectServerSuccessHandler == nil {
		h.ConnectServerSuccessHandler = func() {}
	}
	if h.ConnectServerErrorHandler == nil {
		h.ConnectServerErrorHandler = func(err error) {}
	}
	if h.CheckingVersionHandler == nil {
		h.CheckingVersionHandler = func() {}
	}
	if h.StartDownloadHandler == nil {
		h.StartDownloadHandler = func(names []string) {}
	}
	if h.BundleDownloadedHandler == nil {
		h.BundleDownloadedHandler = func(name string, err error) {}
	}
	if h.DownloadFinishedHandler == nil {
		h.DownloadFinishedHandler = func() {}
	}
	if h.BatchFinishedHandler == nil {
		h.BatchFinishedHandler = func(total int) {}
	}
	if h.BundleOriginatedHandler == nil {
		h.BundleOriginatedHandler = func(name string) {}
	}
	if h.InitializedHandler == nil {
		h.InitializedHandler = func() {}
	}
	if h.ErrorHandler == nil {
		h.ErrorHandler = func(name string, err error) {
			l.Error("%s: %s", name, err.Error())
		}
	} else {
		errHandler := h.ErrorHandler
		h.ErrorHandler = func(name string, err error) {
			l.Error("%s: %s", name, err.Error())
			errHandler(name, err)
		}
	}
}
