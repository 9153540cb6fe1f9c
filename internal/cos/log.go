package cos

import "github.com/golang/glog"

// Thin re-exports so callers write cos.Infof/cos.Errorf the way the teacher
// writes glog.Infof/glog.Errorf directly, without every package importing
// glog by name.
var (
	Infof     = glog.Infof
	Warningf  = glog.Warningf
	Errorf    = glog.Errorf
	Flush     = glog.Flush
)

func V(level glog.Level) glog.Verbose { return glog.V(level) }
