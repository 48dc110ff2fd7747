// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package apns

import (
	"crypto/tls"

	"golang.org/x/crypto/pkcs12"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

// certificateFromPKCS12 extracts a tls.Certificate (leaf certificate +
// matching private key, plus any CA chain) from a PKCS#12 bundle.
func certificateFromPKCS12(raw []byte, password string) (tls.Certificate, error) {
	privateKey, leaf, caCerts, err := pkcs12.DecodeChain(raw, password)
	if err != nil {
		return tls.Certificate{}, relerrors.Wrap(err, relerrors.KindValidation, "decode pkcs12 bundle")
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  privateKey,
		Leaf:        leaf,
	}
	for _, ca := range caCerts {
		cert.Certificate = append(cert.Certificate, ca.Raw)
	}
	return cert, nil
}
