package mocks

//go:generate mockery --name Resolver --srcpkg=go.buildbisect.org/infra/bisection/go/buildrange --output ${PWD}
