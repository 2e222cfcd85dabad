package tilestore

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "tilestore")
