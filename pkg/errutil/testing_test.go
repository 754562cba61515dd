// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/catch-admin/plugin-hook/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("not_found").Errorf("plugin not recorded")
	errutil.AssertErrorCode(t, err, "not_found")
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.With("package", "acme/widgets").Errorf("load failed")
	errutil.AssertErrorContext(t, err, "package", "acme/widgets")
}
