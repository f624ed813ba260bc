package gateway

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "gateway")
