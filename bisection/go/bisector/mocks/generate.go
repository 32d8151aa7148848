package mocks

//go:generate mockery --name TestRunner --srcpkg=go.buildbisect.org/infra/bisection/go/bisector --output ${PWD}
//go:generate mockery --name Downloader --srcpkg=go.buildbisect.org/infra/bisection/go/bisector --output ${PWD}
