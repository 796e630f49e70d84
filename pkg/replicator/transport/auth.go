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

package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

// BasicAuthorizer implements HTTP Basic auth (spec.md §9).
type BasicAuthorizer struct {
	Username string
	Password string
}

// Authorize implements Authorizer.
func (a *BasicAuthorizer) Authorize(req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// OAuth1Authorizer implements OAuth1 header signing (spec.md §9). The
// signature itself is delegated to a Signer so this package does not
// pull in a full OAuth1 client library; production deployments wire in
// a signer grounded on the target database's OAuth1 app credentials.
type OAuth1Authorizer struct {
	Signer func(req *http.Request) (string, error)
}

// Authorize implements Authorizer.
func (a *OAuth1Authorizer) Authorize(req *http.Request) error {
	header, err := a.Signer(req)
	if err != nil {
		return fmt.Errorf("sign oauth1 request: %w", err)
	}
	req.Header.Set("Authorization", header)
	return nil
}

// JWTAuthorizer attaches a bearer token minted from a shared secret
// (spec.md §9 names Basic and OAuth1; a JWT variant follows the same
// per-request signing shape).
type JWTAuthorizer struct {
	Secret   []byte
	Issuer   string
	Subject  string
	TokenTTL time.Duration

	// now is overridable for tests.
	now func() time.Time
}

// Authorize implements Authorizer.
func (a *JWTAuthorizer) Authorize(req *http.Request) error {
	nowFn := a.now
	if nowFn == nil {
		nowFn = time.Now
	}

	ttl := a.TokenTTL
	if ttl == 0 {
		ttl = time.Minute
	}

	now := nowFn()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": a.Issuer,
		"sub": a.Subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})

	signed, err := token.SignedString(a.Secret)
	if err != nil {
		return fmt.Errorf("sign jwt: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+signed)
	return nil
}
