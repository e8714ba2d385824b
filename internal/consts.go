// SPDX-License-Identifier: MPL-2.0

// Copyright (C) 2024-2025 Aleksa Sarai <cyphar@cyphar.com>
// Copyright (C) 2024-2025 SUSE LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package internal

// MaxSymlinkLimit is the maximum number of symlinks that can be encountered
// during a single resolution before returning ELOOP. It is the traversal
// budget of the emulated backend's manual expansion loop; the kernel backend
// does not use it (openat2 applies the kernel's own symlink limit).
const MaxSymlinkLimit = 128
