/*
 * Copyright 2024 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiledb/pushrepl/pkg/replicator/transport"
)

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	got, err := transport.CanonicalJSON(map[string]interface{}{
		"zeta":  1,
		"alpha": 2,
		"mid":   3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, string(got))
}

func TestCanonicalJSON_Deterministic(t *testing.T) {
	input := map[string]interface{}{
		"b": map[string]interface{}{"y": 1, "x": 2},
		"a": []interface{}{3, 1, 2},
	}

	first, err := transport.CanonicalJSON(input)
	require.NoError(t, err)
	second, err := transport.CanonicalJSON(input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, `{"a":[3,1,2],"b":{"x":2,"y":1}}`, string(first))
}
