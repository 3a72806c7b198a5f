package ota

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io/ioutil"
	"math/big"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/iotlab/espctl/log2"
	"github.com/stretchr/testify/require"
)

const testVersion = "1.0.42\n"

var testImage = []byte("\xe9\x06\x02\x20firmware-image\x00\x01\x02")

type tenv struct {
	dir          string
	versionFile  string
	firmwareFile string
	log          *log2.Log
}

func newTestEnv(t testing.TB) *tenv {
	dir := t.TempDir()
	env := &tenv{
		dir:          dir,
		versionFile:  filepath.Join(dir, "versioning"),
		firmwareFile: filepath.Join(dir, "firmware.bin"),
		log:          log2.NewTest(t, log2.LDebug),
	}
	env.log.SetFlags(log2.LTestFlags)
	require.NoError(t, ioutil.WriteFile(env.versionFile, []byte(testVersion+"1.0.41\n"), 0644))
	require.NoError(t, ioutil.WriteFile(env.firmwareFile, testImage, 0644))
	return env
}

func (env *tenv) options() ServerOptions {
	return ServerOptions{
		Log:          env.log,
		VersionFile:  env.versionFile,
		FirmwareFile: env.firmwareFile,
	}
}

// writeTestCert creates self-signed certificate for 127.0.0.1, returns cert and key paths.
func writeTestCert(t testing.TB, dir string) (string, string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "espctl test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDer, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "ca_cert.pem")
	keyPath := filepath.Join(dir, "ca_key.pem")
	require.NoError(t, ioutil.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644))
	require.NoError(t, ioutil.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer}), 0600))
	return certPath, keyPath
}
