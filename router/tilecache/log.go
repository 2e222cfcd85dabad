package tilecache

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "tilecache")
