package vm

import "github.com/tliron/commonlog"

// Named loggers. The backend and verbosity are configured by the
// embedding program through commonlog.Configure.
var (
	heapLog   = commonlog.GetLogger("tarray.heap")
	loaderLog = commonlog.GetLogger("tarray.loader")
	allocLog  = commonlog.GetLogger("tarray.alloc")
)
