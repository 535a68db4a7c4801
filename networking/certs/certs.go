// Package certs generates and caches the self-signed certificates used by
// the RPC server and its clients. A CA is created on first use under the
// application home folder; leaf certificates are signed by it and carry the
// machine's local addresses.
package certs

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io/ioutil"
	"math/big"
	"os"
	"path"
	"time"

	"github.com/fernandosanchezjr/gousbhost/utils"
)

const CertsPath = "certs"

var subject = pkix.Name{Organization: []string{"gousbhost"}}

func GetCertsPath(name string) (string, string, bool) {
	certsFolder := utils.GetSubFolder(CertsPath)
	certPath := path.Join(certsFolder, fmt.Sprintf("%s.crt", name))
	certKeyPath := path.Join(certsFolder, fmt.Sprintf("%s-key.pem", name))
	_, certErr := os.Stat(certPath)
	_, certKeyErr := os.Stat(certKeyPath)
	return certPath, certKeyPath, os.IsNotExist(certErr) || os.IsNotExist(certKeyErr)
}

func LoadCert(name string) (tls.Certificate, error) {
	certPath, certKeyPath, _ := GetCertsPath(name)
	return tls.LoadX509KeyPair(certPath, certKeyPath)
}

func writeCert(certBytes []byte, certPath string, privKey *rsa.PrivateKey, certKeyPath string) error {
	certPEM := new(bytes.Buffer)
	if err := pem.Encode(certPEM, &pem.Block{Type: "CERTIFICATE", Bytes: certBytes}); err != nil {
		return err
	}
	if err := ioutil.WriteFile(certPath, certPEM.Bytes(), 0600); err != nil {
		return err
	}
	privKeyPEM := new(bytes.Buffer)
	if err := pem.Encode(privKeyPEM, &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privKey),
	}); err != nil {
		return err
	}
	return ioutil.WriteFile(certKeyPath, privKeyPEM.Bytes(), 0600)
}

func getCACert() (tls.Certificate, error) {
	certPath, certKeyPath, missing := GetCertsPath("ca")
	if missing {
		now := time.Now()
		template := &x509.Certificate{
			SerialNumber:          big.NewInt(now.Unix()),
			Subject:               subject,
			NotBefore:             now,
			NotAfter:              now.AddDate(1, 0, 0),
			IsCA:                  true,
			ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
			KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
			BasicConstraintsValid: true,
		}
		privKey, err := rsa.GenerateKey(rand.Reader, 4096)
		if err != nil {
			return tls.Certificate{}, err
		}
		certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &privKey.PublicKey, privKey)
		if err != nil {
			return tls.Certificate{}, err
		}
		if err := writeCert(certBytes, certPath, privKey, certKeyPath); err != nil {
			return tls.Certificate{}, err
		}
	}
	return LoadCert("ca")
}

// GetCert returns the named leaf certificate, generating and signing it with
// the local CA when missing.
func GetCert(name string) (tls.Certificate, error) {
	certPath, certKeyPath, missing := GetCertsPath(name)
	if missing {
		caCert, err := getCACert()
		if err != nil {
			return tls.Certificate{}, err
		}
		localIPs, err := utils.GetLocalIPs()
		if err != nil {
			return tls.Certificate{}, err
		}
		now := time.Now()
		template := &x509.Certificate{
			SerialNumber: big.NewInt(now.UnixNano()),
			Subject:      subject,
			IPAddresses:  localIPs,
			NotBefore:    now,
			NotAfter:     now.AddDate(1, 0, 0),
			ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
			KeyUsage:     x509.KeyUsageDigitalSignature,
		}
		privKey, err := rsa.GenerateKey(rand.Reader, 4096)
		if err != nil {
			return tls.Certificate{}, err
		}
		rawCACert, err := x509.ParseCertificate(caCert.Certificate[0])
		if err != nil {
			return tls.Certificate{}, err
		}
		certBytes, err := x509.CreateCertificate(rand.Reader, template, rawCACert, &privKey.PublicKey,
			caCert.PrivateKey)
		if err != nil {
			return tls.Certificate{}, err
		}
		if err := writeCert(certBytes, certPath, privKey, certKeyPath); err != nil {
			return tls.Certificate{}, err
		}
	}
	return LoadCert(name)
}
