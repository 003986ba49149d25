package hrw_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHRW(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "hrw Suite")
}
