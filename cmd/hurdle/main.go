// Copyright (C) The Hurdle Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/celldyn/hurdle"

func main() {
	hurdle.Main()
}
