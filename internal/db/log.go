// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import "github.com/toeirei/keymaster-hub/internal/logging"

func dbLogf(format string, v ...any) {
	logging.Debugf("[DB] "+format, v...)
}
